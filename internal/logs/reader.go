// Package logs reads Claude Code session logs from the projects directory
// and serves them as filtered, paged conversation snapshots.
package logs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"claudeview/internal/types"
)

// maxLineSize bounds one JSONL line. Image-bearing messages can be large.
const maxLineSize = 10 * 1024 * 1024

// Session is one parsed session file.
type Session struct {
	ID         string          `json:"id"`
	Project    string          `json:"project"`    // Working directory of the session
	ProjectDir string          `json:"projectDir"` // Encoded directory name under projects/
	Path       string          `json:"-"`
	ModTime    time.Time       `json:"modTime"`
	Messages   []types.Message `json:"messages"`
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// DefaultProjectsDir returns ~/.claude/projects.
func DefaultProjectsDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude", "projects")
}

// EncodeProjectPath encodes a folder path like Claude Code does.
func EncodeProjectPath(path string) string {
	return strings.ReplaceAll(path, "/", "-")
}

// DecodeProjectDir reverses EncodeProjectPath as far as possible. Dashes that
// were part of the original path come back as slashes, so prefer the cwd
// recorded in the log when there is one.
func DecodeProjectDir(name string) string {
	return strings.ReplaceAll(name, "-", "/")
}

// IsSessionFile reports whether a path names a main session log. Sub-agent
// transcripts (agent-*.jsonl) are not conversations of their own.
func IsSessionFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".jsonl") && !strings.HasPrefix(base, "agent-")
}

// =============================================================================
// SESSION READING
// =============================================================================

// ReadSession parses a session file into displayable messages. Lines that
// fail to parse are skipped; a session written mid-line by a live agent
// still yields everything before the partial line.
func ReadSession(path string) (*Session, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat session: %w", err)
	}

	projectDir := filepath.Base(filepath.Dir(path))
	session := &Session{
		ID:         strings.TrimSuffix(filepath.Base(path), ".jsonl"),
		ProjectDir: projectDir,
		Path:       path,
		ModTime:    info.ModTime(),
		Messages:   []types.Message{},
	}

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		classified, err := types.ClassifyJSONLEvent(line)
		if err != nil {
			continue
		}
		if session.Project == "" {
			session.Project = eventCwd(classified)
		}
		msg := types.ConvertToMessage(classified)
		if msg == nil {
			continue
		}
		if msg.SessionID == "" {
			msg.SessionID = session.ID
		}
		session.Messages = append(session.Messages, *msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan session %s: %w", session.ID, err)
	}

	if session.Project == "" {
		session.Project = DecodeProjectDir(projectDir)
	}
	for i := range session.Messages {
		session.Messages[i].Project = session.Project
	}
	return session, nil
}

func eventCwd(classified *types.ClassifiedJSONLEvent) string {
	switch {
	case classified.User != nil:
		return classified.User.Cwd
	case classified.Assistant != nil:
		return classified.Assistant.Cwd
	}
	return ""
}
