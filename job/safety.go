package job

import (
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/cadence/errors"
)

// scriptScanLimit is how far into the executable the static scan reads.
// A documented shallow check for compatibility with the job corpus, not
// a security boundary; the runner repeats it immediately before spawn.
const scriptScanLimit = 1024

// forbiddenSubstrings reject obviously-dangerous constructs in scripts.
var forbiddenSubstrings = []string{"`", "system(", "exec("}

// coreYAMLTags are the standard tags a configuration document may carry.
var coreYAMLTags = map[string]bool{
	"str":       true,
	"int":       true,
	"float":     true,
	"bool":      true,
	"null":      true,
	"map":       true,
	"seq":       true,
	"binary":    true,
	"timestamp": true,
	"merge":     false, // merge keys splice foreign content; not permitted
}

// ScanUnsafeTags rejects any "!!" type tag in the raw document text
// whose suffix is not a core YAML tag. "!!ruby/..." and "!!python/..."
// always fail here.
func ScanUnsafeTags(raw []byte) error {
	text := string(raw)
	for idx := strings.Index(text, "!!"); idx >= 0; {
		rest := text[idx+2:]
		end := strings.IndexFunc(rest, func(r rune) bool {
			return r == ' ' || r == '\t' || r == '\n' || r == '\r' ||
				r == ',' || r == ']' || r == '}' || r == ':'
		})
		tag := rest
		if end >= 0 {
			tag = rest[:end]
		}
		if !coreYAMLTags[tag] {
			return errors.Securityf("Unsafe YAML tag '!!%s' in %s", tag, ConfigFileName)
		}
		next := strings.Index(rest, "!!")
		if next < 0 {
			break
		}
		idx = idx + 2 + next
	}
	return nil
}

// checkNodeSafety walks a parsed node tree rejecting aliases and any
// resolved tag outside the core set. This is the typed enforcement
// behind the textual scan.
func checkNodeSafety(node *yaml.Node) error {
	if node == nil {
		return nil
	}
	if node.Kind == yaml.AliasNode {
		return errors.Securityf("YAML aliases are not permitted in %s", ConfigFileName)
	}
	if tag, ok := strings.CutPrefix(node.Tag, "!!"); ok && !coreYAMLTags[tag] {
		return errors.Securityf("Unsafe YAML tag '%s' in %s", node.Tag, ConfigFileName)
	}
	for _, child := range node.Content {
		if err := checkNodeSafety(child); err != nil {
			return err
		}
	}
	return nil
}

// ScanScript reads the first 1024 bytes of the executable and rejects
// it if any forbidden substring is present.
func ScanScript(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Configurationf("Cannot read %s: %v", ScriptFileName, err)
	}
	defer f.Close()

	head := make([]byte, scriptScanLimit)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return errors.Configurationf("Cannot read %s: %v", ScriptFileName, err)
	}

	text := string(head[:n])
	for _, needle := range forbiddenSubstrings {
		if strings.Contains(text, needle) {
			return errors.Securityf("Executable contains potentially unsafe system calls (%q)", needle)
		}
	}
	return nil
}
