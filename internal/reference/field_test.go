package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseField(t *testing.T) {
	tests := []struct {
		field  string
		want   Field
		wantOK bool
	}{
		{"metadata.LENGTH", Field{}, false},
		{"references", Field{}, false},
		{"referencesX.proteins.name", Field{}, false},
		{"references.proteins.name", Field{Name: "proteins", Inner: "name"}, true},
		{"references.ligands.metadata.organism", Field{Name: "ligands", Inner: "metadata.organism"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, ok, err := ParseField(tt.field)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseField_Malformed(t *testing.T) {
	for _, field := range []string{
		"references.",
		"references.proteins",
		"references.proteins.",
		"references..name",
		"references.proteins..x",
		"references.proteins.a..b",
		"references.proteins.a.",
	} {
		t.Run(field, func(t *testing.T) {
			_, ok, err := ParseField(field)
			assert.False(t, ok)

			var mErr *MalformedFieldError
			require.ErrorAs(t, err, &mErr)
			assert.Equal(t, field, mErr.Field)
		})
	}
}

func TestField_String(t *testing.T) {
	f := Field{Name: "proteins", Inner: "metadata.organism"}
	assert.Equal(t, "references.proteins.metadata.organism", f.String())
}
