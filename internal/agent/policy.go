package agent

import "encoding/json"

// Policy is the command allow/deny list handed to the agent process.
// Matching and precedence are enforced by the agent itself; this side only
// serializes it into CLINE_COMMAND_PERMISSIONS.
type Policy struct {
	Allow          []string `json:"allow"`
	Deny           []string `json:"deny"`
	AllowRedirects bool     `json:"allowRedirects"`
}

// DefaultPolicy allows build, test and VCS commands and denies destructive ones
func DefaultPolicy() Policy {
	return Policy{
		Allow: []string{
			"npm *",
			"npx *",
			"node *",
			"git *",
			"cat *",
			"ls *",
			"mkdir *",
			"cd *",
			"echo *",
			"cp *",
			"mv *",
			"python *",
			"pip *",
			"pytest *",
		},
		Deny: []string{
			"rm -rf /",
			"rm -rf /*",
			"shutdown *",
			"reboot *",
			"curl *|*sh",
			"wget *|*sh",
		},
		AllowRedirects: true,
	}
}

// ReadOnlyPolicy is used by reviewers: inspection and tests only
func ReadOnlyPolicy() Policy {
	return Policy{
		Allow: []string{
			"git diff *",
			"git log *",
			"git show *",
			"git status",
			"cat *",
			"ls *",
			"npm test",
			"npx jest *",
			"npx playwright *",
			"node *",
			"head *",
			"tail *",
			"wc *",
		},
		Deny: []string{
			"rm *",
			"mv *",
			"cp *",
			"git push *",
			"git commit *",
			"git add *",
			"git checkout *",
			"git reset *",
			"npm install *",
			"pip install *",
		},
		AllowRedirects: false,
	}
}

// JSON serializes the policy for the agent's environment
func (p Policy) JSON() (string, error) {
	if p.Allow == nil {
		p.Allow = []string{}
	}
	if p.Deny == nil {
		p.Deny = []string{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
