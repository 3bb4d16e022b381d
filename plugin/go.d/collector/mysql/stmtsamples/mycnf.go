// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"fmt"
	"os"
	"os/user"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/ini.v1"
)

// dsnFromFile builds a DSN from the [client] section of a my.cnf file.
func dsnFromFile(filename string) (string, error) {
	f, err := ini.Load(filename)
	if err != nil {
		return "", err
	}

	section, err := f.GetSection("client")
	if err != nil {
		return "", fmt.Errorf("'%s': %v", filename, err)
	}

	cfg := mysql.NewConfig()
	cfg.User = section.Key("user").MustString(getUser())
	cfg.Passwd = section.Key("password").String()

	if socket := section.Key("socket").String(); socket != "" {
		cfg.Net = "unix"
		cfg.Addr = socket
	} else if host := section.Key("host").String(); host != "" {
		cfg.Net = "tcp"
		cfg.Addr = host + ":" + section.Key("port").MustString("3306")
	} else if port := section.Key("port").String(); port != "" {
		cfg.Net = "tcp"
		cfg.Addr = "localhost:" + port
	}

	return cfg.FormatDSN(), nil
}

func getUser() string {
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}
