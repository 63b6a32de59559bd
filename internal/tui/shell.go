package tui

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// expandCommand splits a configured command template into argv, substituting
// {placeholder} fields. Templates are declarative strings from the config
// file; nothing is passed through a shell.
func expandCommand(tmpl string, vars map[string]string) []string {
	fields := strings.Fields(tmpl)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		for key, val := range vars {
			f = strings.ReplaceAll(f, "{"+key+"}", val)
		}
		out = append(out, f)
	}
	return out
}

// runCommand starts an external program and does not wait for it.
func runCommand(tmpl string, vars map[string]string) error {
	argv := expandCommand(tmpl, vars)
	if len(argv) == 0 {
		return fmt.Errorf("empty command template")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	return cmd.Start()
}

// runCommandWait runs an external program to completion with the terminal
// attached, for programs the user interacts with (picker, editor, recorder).
func runCommandWait(tmpl string, vars map[string]string) error {
	argv := expandCommand(tmpl, vars)
	if len(argv) == 0 {
		return fmt.Errorf("empty command template")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// editText runs the configured editor on a scratch file seeded with the
// current draft and returns the trimmed result.
func editText(tmpl, seed string) (string, error) {
	scratch, err := os.CreateTemp("", "tgram-msg-*")
	if err != nil {
		return "", err
	}
	if _, err := scratch.WriteString(seed); err != nil {
		scratch.Close()
		return "", err
	}
	scratch.Close()
	defer os.Remove(scratch.Name())

	if err := runCommandWait(tmpl, map[string]string{"file_path": scratch.Name()}); err != nil {
		return "", err
	}
	draft, err := os.ReadFile(scratch.Name())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(draft)), nil
}

// pickFile runs the configured picker, which writes the chosen path into a
// scratch file. An empty return means the user aborted.
func pickFile(tmpl string) (string, error) {
	scratch, err := os.CreateTemp("", "tgram-pick-*")
	if err != nil {
		return "", err
	}
	scratch.Close()
	defer os.Remove(scratch.Name())

	if err := runCommandWait(tmpl, map[string]string{"file_path": scratch.Name()}); err != nil {
		return "", err
	}
	chosen, err := os.ReadFile(scratch.Name())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(chosen)), nil
}
