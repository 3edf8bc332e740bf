package project

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/aidanlsb/assetcat/internal/atomicfile"
	"github.com/aidanlsb/assetcat/internal/guid"
	"github.com/aidanlsb/assetcat/internal/model"
)

// assetFile is the YAML layout of a container:
//
//	kind: EntityPrototype
//	name: Tank
//	guid: "[1B6A075DEE3A0393]"
//	objects:
//	  - id: 4
//	    name: Turret
//	    kind: Component
//	    guid: "[34B213AC03528EF4]"
type assetFile struct {
	Kind    string         `yaml:"kind"`
	Name    string         `yaml:"name"`
	GUID    yaml.Node      `yaml:"guid"`
	Objects []nestedObject `yaml:"objects"`
}

type nestedObject struct {
	ID   int64     `yaml:"id"`
	Name string    `yaml:"name"`
	Kind string    `yaml:"kind"`
	GUID yaml.Node `yaml:"guid"`
}

type metaFile struct {
	GUID string `yaml:"guid"`
}

func readAsset(fullPath string) (*assetFile, error) {
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, err
	}
	var a assetFile
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse %s: %w", fullPath, err)
	}
	return &a, nil
}

// objects converts a parsed asset into content objects. Nested objects with
// sub id 0 or a repeated sub id are skipped.
func (a *assetFile) objects(container uuid.UUID, relPath string) []model.ContentObject {
	name := a.Name
	if name == "" {
		name = strings.TrimSuffix(path.Base(relPath), path.Ext(relPath))
	}
	out := []model.ContentObject{{
		ContainerID:   container,
		SubID:         guid.PrimarySubID,
		IsPrimary:     true,
		Name:          name,
		Kind:          a.Kind,
		ContainerPath: relPath,
	}}
	seen := map[int64]bool{guid.PrimarySubID: true}
	for _, n := range a.Objects {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out = append(out, model.ContentObject{
			ContainerID:   container,
			SubID:         n.ID,
			Name:          n.Name,
			Kind:          n.Kind,
			ContainerPath: relPath,
		})
	}
	return out
}

// storedIdentity returns the guid text of sub.
func (a *assetFile) storedIdentity(sub int64) (string, bool, error) {
	if sub == guid.PrimarySubID {
		raw, ok := identityText(&a.GUID)
		return raw, ok, nil
	}
	for i := range a.Objects {
		if a.Objects[i].ID == sub {
			raw, ok := identityText(&a.Objects[i].GUID)
			return raw, ok, nil
		}
	}
	return "", false, ErrNotFound
}

// identityText reads a guid field. An unquoted "[ABC]" parses as a one-item
// flow sequence, which is folded back into its bracketed text.
func identityText(n *yaml.Node) (string, bool) {
	switch n.Kind {
	case 0:
		return "", false
	case yaml.ScalarNode:
		if n.Tag == "!!null" || strings.TrimSpace(n.Value) == "" {
			return "", false
		}
		return n.Value, true
	case yaml.SequenceNode:
		if len(n.Content) == 1 && n.Content[0].Kind == yaml.ScalarNode {
			return "[" + n.Content[0].Value + "]", true
		}
	}
	return "<unreadable>", true
}

// stampAsset rewrites the guid of sub in fullPath, keeping the rest of the
// document as it was.
func stampAsset(fullPath string, sub int64, id guid.AssetGuid) error {
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", fullPath, err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("%s: top level is not a mapping", fullPath)
	}
	root := doc.Content[0]

	target := root
	if sub != guid.PrimarySubID {
		target = findNested(root, sub)
		if target == nil {
			return fmt.Errorf("%s: object %d: %w", fullPath, sub, ErrNotFound)
		}
	}
	setMapValue(target, "guid", &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!str",
		Style: yaml.DoubleQuotedStyle,
		Value: guid.Format(id),
	})

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode %s: %w", fullPath, err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return atomicfile.WriteFile(fullPath, buf.Bytes(), 0)
}

func findNested(root *yaml.Node, sub int64) *yaml.Node {
	objects := mapValue(root, "objects")
	if objects == nil || objects.Kind != yaml.SequenceNode {
		return nil
	}
	for _, item := range objects.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		idNode := mapValue(item, "id")
		if idNode == nil {
			continue
		}
		if v, err := strconv.ParseInt(idNode.Value, 10, 64); err == nil && v == sub {
			return item
		}
	}
	return nil
}

func mapValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func setMapValue(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = value
			return
		}
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
}

// readMeta returns the container id stored next to an asset.
// exists is false when there is no meta file.
func readMeta(metaPath string) (id uuid.UUID, exists bool, err error) {
	data, err := os.ReadFile(metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	var m metaFile
	if err := yaml.Unmarshal(data, &m); err != nil {
		return uuid.Nil, true, fmt.Errorf("parse %s: %w", metaPath, err)
	}
	id, err = guid.ParseContainerID(m.GUID)
	if err != nil {
		return uuid.Nil, true, fmt.Errorf("%s: %w", metaPath, err)
	}
	return id, true, nil
}

func writeMeta(metaPath string, id uuid.UUID) error {
	data, err := yaml.Marshal(metaFile{GUID: guid.FormatContainerID(id)})
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(metaPath, data, 0o644)
}
