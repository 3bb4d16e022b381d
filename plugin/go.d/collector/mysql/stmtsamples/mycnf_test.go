// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_dsnFromFile(t *testing.T) {
	user := getUser()
	tests := map[string]struct {
		config      string
		expectedDSN string
		wantErr     bool
	}{
		"socket": {
			config: `
[client]
socket=/var/run/mysqld/mysqld.sock
`,
			expectedDSN: user + "@unix(/var/run/mysqld/mysqld.sock)/",
		},
		"socket wins over host and port": {
			config: `
[client]
host=10.0.0.0
port=3307
socket=/var/run/mysqld/mysqld.sock
`,
			expectedDSN: user + "@unix(/var/run/mysqld/mysqld.sock)/",
		},
		"host, port": {
			config: `
[client]
host=10.0.0.0
port=3307
`,
			expectedDSN: user + "@tcp(10.0.0.0:3307)/",
		},
		"only host": {
			config: `
[client]
host=10.0.0.0
`,
			expectedDSN: user + "@tcp(10.0.0.0:3306)/",
		},
		"only port": {
			config: `
[client]
port=3307
`,
			expectedDSN: user + "@tcp(localhost:3307)/",
		},
		"user, password": {
			config: `
[client]
user=sampler
password=secret
`,
			expectedDSN: "sampler:secret@/",
		},
		"no client section": {
			config: `
[mysqld]
`,
			wantErr: true,
		},
	}

	dir := t.TempDir()

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "my.cnf")
			require.NoError(t, os.WriteFile(path, []byte(test.config), 0644))

			dsn, err := dsnFromFile(path)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expectedDSN, dsn)
		})
	}
}
