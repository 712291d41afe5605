package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_AllKinds(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	for kind, wantSubject := range subjects {
		t.Run(string(kind), func(t *testing.T) {
			subject, body, err := r.Render(kind, Payload{Name: "Jane", Code: "123456"})
			require.NoError(t, err)
			assert.Equal(t, wantSubject, subject)
			assert.Contains(t, body, "<html>")
			assert.Contains(t, body, "</html>")
		})
	}
}

func TestRenderer_CodeAppearsInCodeMails(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	for _, kind := range []Kind{KindVerificationCode, KindPasswordResetCode, KindEmailChangeCode} {
		_, body, err := r.Render(kind, Payload{Code: "aB3dE5"})
		require.NoError(t, err)
		assert.Contains(t, body, "aB3dE5", kind)
	}
}

func TestRenderer_EscapesName(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, body, err := r.Render(KindWelcome, Payload{Name: "<script>x</script>"})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func TestRenderer_UnknownKind(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, _, err = r.Render(Kind("sms"), Payload{})
	assert.ErrorContains(t, err, "unknown notification kind")
}
