package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Two guards in a row with the same return can be merged:
	//   if a { return err }
	//   if b { return err }
	//   => if a || b { return err }
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)

	// Same shape with continue inside loops.
	m.Match(`if $c1 { continue }; if $c2 { continue }`).
		Report(`two consecutive continues; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { continue }`)

	// Nested loops are not always wrong, but they are worth a second look.
	m.Match(`for $*_ { for $*_ { $*_ } }`).
		Report(`nested for-loop; consider extracting inner loop logic or reducing algorithmic complexity`)
}

func logging(m dsl.Matcher) {
	// Errors go through zap.Error so they land under the "error" key.
	m.Match(`zap.Any("error", $err)`, `zap.Any("err", $err)`).
		Where(m["err"].Type.Implements("error")).
		Report(`use zap.Error($err)`).
		Suggest(`zap.Error($err)`)

	// Envelope failures must carry a kind.
	m.Match(`polish.Envelope{Success: false, $*_}`).
		Report(`build failed envelopes with polish.Failure so Type and Code are set`)
}
