package document

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

const identityHashLength = 16

// MeadowlarkIDForDocumentIdentity derives the primary key of a document from
// its resource and natural identity. The resource part keeps ids of
// different resource types apart even when their identities are equal.
func MeadowlarkIDForDocumentIdentity(ri ResourceInfo, identity DocumentIdentity) string {
	return meadowlarkID(ri.ProjectName, ri.ResourceName, identity)
}

// MeadowlarkIDForReference derives the id a reference must resolve to.
func MeadowlarkIDForReference(ref DocumentReference) string {
	return meadowlarkID(ref.ProjectName, ref.ResourceName, ref.DocumentIdentity)
}

// SuperclassAliasID derives the alias shared by every subclass document that
// represents the same superclass instance.
func SuperclassAliasID(sc SuperclassInfo) string {
	return meadowlarkID(sc.ProjectName, sc.ResourceName, sc.DocumentIdentity)
}

// AliasIDsFor returns the ids a document can be looked up by: its own id and,
// for subclasses, the superclass alias.
func AliasIDsFor(meadowlarkID string, sc *SuperclassInfo) []string {
	ids := []string{meadowlarkID}
	if sc != nil {
		if alias := SuperclassAliasID(*sc); alias != meadowlarkID {
			ids = append(ids, alias)
		}
	}
	return ids
}

// OutboundRefsFor lists the distinct ids referenced by the document,
// document references first.
func OutboundRefsFor(info DocumentInfo) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(refs []DocumentReference) {
		for _, r := range refs {
			id := MeadowlarkIDForReference(r)
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	add(info.DocumentReferences)
	add(info.DescriptorReferences)
	return out
}

// GenerateDocumentUUID returns a fresh surrogate id.
func GenerateDocumentUUID() string {
	return uuid.NewString()
}

func meadowlarkID(projectName, resourceName string, identity DocumentIdentity) string {
	buf := make([]byte, 8, 8+identityHashLength)
	binary.BigEndian.PutUint64(buf, xxhash.Sum64String(projectName+"#"+resourceName))

	hash := make([]byte, identityHashLength)
	sha3.ShakeSum256(hash, []byte(CanonicalIdentity(identity)))
	buf = append(buf, hash...)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// CanonicalIdentity renders an identity as sorted key=value pairs joined by
// '#'. Values are JSON encoded so 1 and "1" stay distinct.
func CanonicalIdentity(identity DocumentIdentity) string {
	keys := make([]string, 0, len(identity))
	for k := range identity {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(identity[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%v", identity[k]))
		}
		parts = append(parts, k+"="+string(v))
	}
	return strings.Join(parts, "#")
}
