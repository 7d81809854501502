package factstore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,1000}$`)

func validateIdentifier(name string) error {
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// stagingName returns a unique temporary table name for table.
func stagingName(table string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s_staging_%s", table, id[:16])
}
