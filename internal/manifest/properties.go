package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nicdgonzalez/axiom/internal/fsutil"
)

// ErrEULANotAccepted is returned when the server's EULA has not been accepted.
var ErrEULANotAccepted = errors.New("the Minecraft EULA has not been accepted (https://aka.ms/MinecraftEULA)")

// RenderProperties turns the [properties] table into server.properties text.
// Nested tables become dotted keys and ':' in string values is escaped.
// Keys are sorted so the output is stable.
func RenderProperties(props map[string]any) (string, error) {
	var lines []string
	if err := renderTable(&lines, "", props); err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", nil
	}
	return strings.Join(lines, "\n") + "\n", nil
}

func renderTable(lines *[]string, prefix string, table map[string]any) error {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		key := prefix + k
		switch v := table[k].(type) {
		case string:
			*lines = append(*lines, key+"="+strings.ReplaceAll(v, ":", `\:`))
		case bool:
			*lines = append(*lines, key+"="+strconv.FormatBool(v))
		case int64:
			*lines = append(*lines, key+"="+strconv.FormatInt(v, 10))
		case int:
			*lines = append(*lines, key+"="+strconv.Itoa(v))
		case float64:
			*lines = append(*lines, key+"="+strconv.FormatFloat(v, 'f', -1, 64))
		case map[string]any:
			if err := renderTable(lines, key+".", v); err != nil {
				return err
			}
		default:
			return fmt.Errorf("property %s: unsupported value type %T", key, v)
		}
	}
	return nil
}

// WriteProperties renders props into serverDir/server.properties. Nothing is
// written when props is empty, leaving the server's own file alone.
func WriteProperties(serverDir string, props map[string]any) error {
	if len(props) == 0 {
		return nil
	}
	text, err := RenderProperties(props)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(serverDir, 0o755); err != nil {
		return fmt.Errorf("failed to create server directory: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(serverDir, "server.properties"), []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write server.properties: %w", err)
	}
	return nil
}

func eulaPath(serverDir string) string {
	return filepath.Join(serverDir, "eula.txt")
}

// EULAAccepted reports whether serverDir/eula.txt contains eula=true.
func EULAAccepted(serverDir string) (bool, error) {
	data, err := os.ReadFile(eulaPath(serverDir))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read eula.txt: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.EqualFold(strings.TrimSpace(line), "eula=true") {
			return true, nil
		}
	}
	return false, nil
}

// AcceptEULA records acceptance of the EULA in serverDir.
func AcceptEULA(serverDir string) error {
	if err := os.MkdirAll(serverDir, 0o755); err != nil {
		return fmt.Errorf("failed to create server directory: %w", err)
	}
	content := "# Accepted through axiom. See https://aka.ms/MinecraftEULA\neula=true\n"
	if err := fsutil.WriteFileAtomic(eulaPath(serverDir), []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write eula.txt: %w", err)
	}
	return nil
}
