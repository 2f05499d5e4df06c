package conn

import (
	"fmt"

	"github.com/merizodb/merizo-driver/common/util"
)

// Addr is a single host:port endpoint. The zero value of either field
// falls back to the default.
type Addr struct {
	Host string
	Port int
}

func (a Addr) withDefaults() Addr {
	if a.Host == "" {
		a.Host = util.DefaultHost
	}
	if a.Port == 0 {
		a.Port = util.DefaultPort
	}
	return a
}

func (a Addr) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Auth is a saved credential triple. The saved-auth list on a connection
// holds at most one entry per database.
type Auth struct {
	DB       string
	Username string
	Password string
}
