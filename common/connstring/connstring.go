// Package connstring parses mongodb:// connection URIs into endpoint and
// credential sets.
package connstring

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/merizodb/merizo-driver/common/util"
)

const scheme = "mongodb://"

// One comma-separated host spec: optional user:pass@, host, optional
// :port, optional /database.
var hostSpecMatcher = regexp.MustCompile(`^(([.\w]+):([\w]+)@)?([.\w]+)(:([\w]+))?(/([-\w]+))?$`)

var portMatcher = regexp.MustCompile(`^[0-9]+$`)

// Node is one parsed host:port endpoint.
type Node struct {
	Host string
	Port int
}

// AuthEntry is a credential triple parsed out of the URI.
type AuthEntry struct {
	DB       string
	Username string
	Password string
}

// ConnString is the parsed form of a connection URI.
type ConnString struct {
	Nodes []Node
	Auths []AuthEntry
}

// Parse parses uri per the grammar
// mongodb://[user:pass@]host1[:port1][,host2[:port2]...][/db].
// Credentials and a database, when given, must all be present somewhere in
// the URI; together they produce one saved auth entry.
func Parse(uri string) (ConnString, error) {
	if !strings.HasPrefix(uri, scheme) {
		return ConnString{}, fmt.Errorf(
			"URI must be in the form %v[username:password@]host1[:port1][,host2[:port2]][/database]",
			scheme)
	}

	var cs ConnString
	var username, password, db string

	for _, hostSpec := range strings.Split(uri[len(scheme):], ",") {
		matches := hostSpecMatcher.FindStringSubmatch(hostSpec)
		if matches == nil {
			return ConnString{}, fmt.Errorf("invalid host specifier %q", hostSpec)
		}

		node := Node{Host: matches[4], Port: util.DefaultPort}
		if matches[6] != "" {
			if !portMatcher.MatchString(matches[6]) {
				return ConnString{}, fmt.Errorf("invalid port %q; port must be an integer", matches[6])
			}
			node.Port, _ = strconv.Atoi(matches[6])
		}
		cs.Nodes = append(cs.Nodes, node)

		if matches[2] != "" {
			username = matches[2]
			password = matches[3]
		}
		if matches[8] != "" {
			db = matches[8]
		}
	}

	anyAuth := username != "" || password != "" || db != ""
	allAuth := username != "" && password != "" && db != ""
	if anyAuth && !allAuth {
		return ConnString{}, fmt.Errorf(
			"a URI with credentials or a database must supply username, password, and database")
	}
	if allAuth {
		cs.Auths = append(cs.Auths, AuthEntry{DB: db, Username: username, Password: password})
	}
	return cs, nil
}
