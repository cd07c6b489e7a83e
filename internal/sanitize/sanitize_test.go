package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "My/Manga: Special*", want: "My_Manga_ Special_"},
		{in: `a<b>c"d\e|f?g`, want: "a_b_c_d_e_f_g"},
		{in: "Trailing dots...", want: "Trailing dots"},
		{in: "  padded . . ", want: "padded"},
		{in: "Vol. 1", want: "Vol. 1"},
		{in: "...", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.in))
		})
	}
}

func TestFilenameOr(t *testing.T) {
	assert.Equal(t, "Manga_1234abcd", FilenameOr(" ..", "Manga_1234abcd"))
	assert.Equal(t, "Title", FilenameOr("Title.", "fallback"))
}
