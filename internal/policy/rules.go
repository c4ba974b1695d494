package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"deskbot/internal/domain"
)

// ruleFile is the on-disk policy format.
type ruleFile struct {
	Rules []domain.CommandRule `yaml:"rules"`
}

// LoadRules reads a YAML policy file. An empty path returns the
// built-in defaults.
func LoadRules(path string) ([]domain.CommandRule, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("policy file %s contains no rules", path)
	}
	return f.Rules, nil
}

// SaveRules writes rules back out, used by `deskbot init` to give the
// user an editable starting point.
func SaveRules(path string, rules []domain.CommandRule) error {
	data, err := yaml.Marshal(ruleFile{Rules: rules})
	if err != nil {
		return fmt.Errorf("marshal policy rules: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write policy file: %w", err)
	}
	return nil
}

// DefaultRules is the built-in policy table. Read-only diagnostics run
// unattended; anything that mutates state waits for approval; known
// destructive invocations are refused outright.
func DefaultRules() []domain.CommandRule {
	auto := func(cmd string, prefix ...string) domain.CommandRule {
		return domain.CommandRule{
			Command: cmd, ArgPrefix: prefix,
			Level: domain.ApprovalAuto, Category: domain.CategoryContext,
		}
	}
	ask := func(reason, cmd string, prefix ...string) domain.CommandRule {
		return domain.CommandRule{
			Command: cmd, ArgPrefix: prefix,
			Level: domain.ApprovalRequired, Category: domain.CategoryCritical,
			Reason: reason,
		}
	}
	deny := func(reason, cmd string, prefix ...string) domain.CommandRule {
		return domain.CommandRule{
			Command: cmd, ArgPrefix: prefix,
			Level: domain.ApprovalBlocked, Category: domain.CategoryForbidden,
			Reason: reason,
		}
	}

	return []domain.CommandRule{
		// Destructive commands, refused unconditionally.
		deny("removes containers", "docker", "rm"),
		deny("removes images", "docker", "rmi"),
		deny("kills containers", "docker", "kill"),
		deny("prunes docker state", "docker", "system", "prune"),
		deny("deletes a branch", "git", "branch", "-d"),
		deny("deletes a branch", "git", "branch", "-D"),
		deny("rewrites remote history", "git", "push", "--force"),
		deny("deletes files recursively", "rm", "-rf"),
		deny("deletes files recursively", "rm", "-fr"),
		deny("formats a filesystem", "mkfs"),
		deny("raw disk write", "dd"),
		deny("powers off the machine", "shutdown"),
		deny("restarts the machine", "reboot"),
		deny("recursive delete", "del", "/s"),

		// Side-effecting commands that a human must approve.
		ask("removes files", "rm"),
		ask("starts containers", "docker", "run"),
		ask("starts compose services", "docker", "compose", "up"),
		ask("stops compose services", "docker", "compose", "down"),
		ask("stops a container", "docker", "stop"),
		ask("starts a container", "docker", "start"),
		ask("restarts a container", "docker", "restart"),
		ask("runs inside a container", "docker", "exec"),
		ask("pulls an image", "docker", "pull"),
		ask("discards working tree changes", "git", "reset"),
		ask("discards working tree changes", "git", "checkout"),
		ask("rebases history", "git", "rebase"),
		ask("pushes to a remote", "git", "push"),
		ask("pulls from a remote", "git", "pull"),
		ask("installs packages", "npm", "install"),
		ask("updates packages", "npm", "update"),
		ask("installs packages", "pip", "install"),
		ask("runs a script", "node"),
		ask("runs a script", "python"),
		ask("runs a script", "python3"),
		ask("manages services", "systemctl"),
		ask("elevated execution", "sudo"),
		ask("terminates a process", "kill"),
		ask("terminates processes", "killall"),

		// Read-only diagnostics, safe to run unattended.
		auto("docker", "ps"),
		auto("docker", "stats"),
		auto("docker", "info"),
		auto("docker", "version"),
		auto("docker", "events"),
		auto("docker", "top"),
		auto("docker", "logs"),
		auto("docker", "inspect"),
		auto("docker", "images"),
		auto("docker", "compose", "ps"),
		auto("git", "status"),
		auto("git", "log"),
		auto("git", "show"),
		auto("git", "diff"),
		auto("git", "rev-parse"),
		auto("git", "branch", "--list"),
		auto("git", "remote", "-v"),
		auto("npm", "ls"),
		auto("npm", "list"),
		auto("npm", "view"),
		auto("npm", "whoami"),
		auto("npm", "outdated"),
		auto("node", "--version"),
		auto("python", "--version"),
		auto("python3", "--version"),
		auto("powershell", "get-process"),
		auto("cmd", "/c", "tasklist"),
		auto("systemctl", "status"),
		auto("ls"),
		auto("pwd"),
		auto("whoami"),
		auto("date"),
		auto("uname"),
		auto("uptime"),
		auto("df"),
		auto("free"),
		auto("cat"),
		auto("head"),
		auto("tail"),
		auto("ps"),
	}
}
