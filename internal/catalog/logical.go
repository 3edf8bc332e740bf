package catalog

import (
	"github.com/google/uuid"

	"github.com/aidanlsb/assetcat/internal/model"
	"github.com/aidanlsb/assetcat/internal/paths"
)

type objectKey struct {
	container uuid.UUID
	sub       int64
}

func keyOf(o model.ContentObject) objectKey {
	return objectKey{container: o.ContainerID, sub: o.SubID}
}

// logicalPaths computes the logical path of every object. Nested objects
// whose name is empty or shared with a sibling get a "#<sub>" suffix.
func logicalPaths(objects []model.ContentObject, roots []string) map[objectKey]string {
	type nameKey struct {
		container uuid.UUID
		name      string
	}
	names := make(map[nameKey]int)
	for _, o := range objects {
		if !o.IsPrimary {
			names[nameKey{o.ContainerID, o.Name}]++
		}
	}

	out := make(map[objectKey]string, len(objects))
	for _, o := range objects {
		base := paths.ContainerLogicalPath(o.ContainerPath, roots...)
		if o.IsPrimary {
			out[keyOf(o)] = base
			continue
		}
		ambiguous := names[nameKey{o.ContainerID, o.Name}] > 1
		out[keyOf(o)] = paths.NestedLogicalPath(base, o.Name, o.SubID, ambiguous)
	}
	return out
}

// LogicalPath returns the logical path of obj given its container siblings
// (obj itself may or may not be among them).
func LogicalPath(obj model.ContentObject, siblings []model.ContentObject, roots ...string) string {
	group := []model.ContentObject{obj}
	for _, s := range siblings {
		if s.ContainerID == obj.ContainerID && s.SubID != obj.SubID {
			group = append(group, s)
		}
	}
	return logicalPaths(group, roots)[keyOf(obj)]
}
