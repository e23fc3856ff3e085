package session

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/EgorLis/arcorclient/internal/model"
)

// APIVersion is the server API version this client speaks. No negotiation
// takes place; the server reported version is only compared and logged.
const APIVersion = "1.0.0"

func (s *Session) APIVersion() string { return APIVersion }

// Compatible reports whether server shares the client's major API version.
// Versions that are not valid semver are accepted.
func Compatible(server string) bool {
	sv, cv := canonical(server), canonical(APIVersion)
	if !semver.IsValid(sv) || !semver.IsValid(cv) {
		return true
	}
	return semver.Major(sv) == semver.Major(cv)
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

func (s *Session) checkVersion(info model.SystemInfo) {
	ev := s.log.Info()
	if !Compatible(info.APIVersion) {
		ev = s.log.Warn()
	}
	ev.Str("server_api", info.APIVersion).Str("client_api", APIVersion).Msg("api version")
}
