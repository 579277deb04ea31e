package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractScript(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "python fence",
			in:   "Here you go:\n```python\nimport pandas as pd\nprint('ok')\n```\nDone.",
			want: "import pandas as pd\nprint('ok')",
		},
		{
			name: "py fence with surrounding whitespace",
			in:   "```py  \n\n  x = 1\n\n```",
			want: "x = 1",
		},
		{
			name: "first python block wins",
			in:   "```bash\npip install pandas\n```\n```python\na = 1\n```\n```python\nb = 2\n```",
			want: "a = 1",
		},
		{
			name: "untagged fence falls back to stripping markers",
			in:   "```\ny = 2\n```",
			want: "y = 2",
		},
		{
			name: "no fences at all",
			in:   "  print('hi')  \n",
			want: "print('hi')",
		},
		{
			name: "crlf line endings",
			in:   "```Python\r\nz = 3\r\n```",
			want: "z = 3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractScript(tt.in))
		})
	}
}
