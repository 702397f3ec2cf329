package manifest

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
)

const (
	stackPrefix    = "stack-"
	resourcePrefix = "simulation-"
)

// hashSuffix matches the suffix ResourceName appends to folded IDs.
var hashSuffix = regexp.MustCompile(`-[0-9a-f]{8}$`)

// StackName returns the engine stack name for a user.
// It is a pure, injective function of userID so repeated or concurrent
// requests for the same user always address the same stack.
func StackName(userID string) string {
	return stackPrefix + userID
}

// ResourceName returns the Kubernetes object name for a user's simulation.
//
// IDs that already form a valid DNS-1123 label are used verbatim
// (simulation-<user_id>). Anything else is lowercased, underscores become
// hyphens, and an FNV-32a hash of the exact ID is appended, so two IDs that
// differ only by case or by '_' vs '-' still get different names. Verbatim
// names never end in a hash suffix, so they cannot meet a hashed name.
func ResourceName(userID string) string {
	name := resourcePrefix + userID
	if len(validation.IsDNS1123Label(name)) == 0 && !hashSuffix.MatchString(name) {
		return name
	}

	folded := strings.ToLower(strings.ReplaceAll(userID, "_", "-"))
	folded = strings.Trim(folded, "-")

	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))

	if folded == "" {
		return fmt.Sprintf("%s%08x", resourcePrefix, h.Sum32())
	}
	return fmt.Sprintf("%s%s-%08x", resourcePrefix, folded, h.Sum32())
}

// RoutePrefix returns the public path prefix for one of a simulation's
// endpoints, e.g. /u1/mod/simulation.
func RoutePrefix(userID, moduleID, endpoint string) string {
	return "/" + userID + "/" + moduleID + "/" + endpoint
}
