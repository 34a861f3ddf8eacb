// Unit tests for the response normalizer: each upstream shape it recognizes,
// rule precedence, and the unrecognized-format fallback.
package polish

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Shapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want Envelope
	}{
		{
			name: "canonical string",
			body: `{"success":true,"data":"Improved.","type":"suggestion"}`,
			want: Suggestion(Text("Improved.")),
		},
		{
			name: "canonical list",
			body: `{"success":true,"data":["a","b"],"type":"suggestion"}`,
			want: Suggestion(List([]string{"a", "b"})),
		},
		{
			name: "canonical analysis",
			body: `{"success":true,"data":"Looks fine.","type":"analysis"}`,
			want: Envelope{Success: true, Data: Text("Looks fine."), Type: TypeAnalysis},
		},
		{
			name: "canonical without type defaults to suggestion",
			body: `{"success":true,"data":"x"}`,
			want: Suggestion(Text("x")),
		},
		{
			name: "error type overrides success flag",
			body: `{"success":true,"data":"x","type":"error","error":"provider said no"}`,
			want: Failure(KindUpstreamReported, "provider said no"),
		},
		{
			name: "success inferred from data",
			body: `{"data":"x"}`,
			want: Suggestion(Text("x")),
		},
		{
			name: "result alias",
			body: `{"success":true,"result":"from result"}`,
			want: Suggestion(Text("from result")),
		},
		{
			name: "data text unwrap",
			body: `{"success":true,"data":{"text":"wrapped"}}`,
			want: Suggestion(Text("wrapped")),
		},
		{
			name: "message fallback",
			body: `{"success":true,"message":"from message"}`,
			want: Suggestion(Text("from message")),
		},
		{
			name: "null data on success becomes empty string",
			body: `{"success":true,"data":null}`,
			want: Suggestion(Text("")),
		},
		{
			name: "non-string list items become json",
			body: `{"success":true,"data":["a",1,{"k":"v"}]}`,
			want: Suggestion(List([]string{"a", "1", `{"k":"v"}`})),
		},
		{
			name: "canonical failure carries error",
			body: `{"success":false,"error":"quota"}`,
			want: Failure(KindUpstreamReported, "quota"),
		},
		{
			name: "canonical failure without error",
			body: `{"success":false}`,
			want: Failure(KindUpstreamReported, "Unknown error from upstream."),
		},
		{
			name: "bare array",
			body: `["x","y"]`,
			want: Suggestion(List([]string{"x", "y"})),
		},
		{
			name: "json string",
			body: `"plain"`,
			want: Suggestion(Text("plain")),
		},
		{
			name: "non-json text",
			body: `just text`,
			want: Suggestion(Text("just text")),
		},
		{
			name: "openai completion text",
			body: `{"choices":[{"text":"completion"}]}`,
			want: Suggestion(Text("completion")),
		},
		{
			name: "openai chat message",
			body: `{"choices":[{"message":{"role":"assistant","content":"Hi"}}]}`,
			want: Suggestion(Text("Hi")),
		},
		{
			name: "gemini candidates",
			body: `{"candidates":[{"content":{"parts":[{"text":"G"}]}}]}`,
			want: Suggestion(Text("G")),
		},
		{
			name: "error field string",
			body: `{"error":"bad key"}`,
			want: Failure(KindUpstreamReported, "bad key"),
		},
		{
			name: "error field object",
			body: `{"error":{"code":401}}`,
			want: Failure(KindUpstreamReported, `{"code":401}`),
		},
		{
			name: "unrecognized object",
			body: `{"foo":1}`,
			want: Failure(KindUnrecognizedFormat, "Upstream returned an unrecognized format."),
		},
		{
			name: "json number",
			body: `42`,
			want: Failure(KindUnrecognizedFormat, "Upstream returned an unrecognized format."),
		},
		{
			name: "empty choices falls through to error",
			body: `{"choices":[],"error":"nope"}`,
			want: Failure(KindUpstreamReported, "nope"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Normalize([]byte(tc.body))
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Normalize(%s) mismatch (-want +got):\n%s", tc.body, diff)
			}
			assert.True(t, got.Valid(), "normalized envelope must satisfy invariants")
		})
	}
}

func TestNormalize_CanonicalWinsOverChoices(t *testing.T) {
	t.Parallel()

	body := []byte(`{"success":true,"data":"canonical","choices":[{"text":"openai"}]}`)
	assert.Equal(t, "canonical", Rule(body))
	assert.Equal(t, "canonical", Normalize(body).Data.First())
}

func TestNormalize_CanonicalEnvelopeIsFixedPoint(t *testing.T) {
	t.Parallel()

	for _, env := range []Envelope{
		Suggestion(Text("one")),
		Suggestion(List([]string{"a", "b", "c"})),
		{Success: true, Data: Text("why"), Type: TypeClarification},
		{Success: true, Data: Text("ok"), Type: TypeAnalysis},
	} {
		raw, err := json.Marshal(env)
		require.NoError(t, err)
		if diff := cmp.Diff(env, Normalize(raw)); diff != "" {
			t.Errorf("round trip of %s changed the envelope (-want +got):\n%s", raw, diff)
		}
	}
}

func TestNormalize_JSONNullIsTreatedAsText(t *testing.T) {
	t.Parallel()

	got := Normalize([]byte("null"))
	assert.Equal(t, Suggestion(Text("null")), got)
}
