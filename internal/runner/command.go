package runner

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownAgent is returned when the requested CLI is not configured.
var ErrUnknownAgent = errors.New("unsupported CLI")

// BuildCommand resolves a run request into a concrete child invocation.
// With a container image configured the agent runs wrapped as
// `docker run --rm -i [-e K=V ...] IMAGE <cli> <args...>`, the simple CLI
// name matching the image's symlinks and the request env forwarded as -e
// flags. Otherwise the configured executable path is used directly and the
// request env is merged over the server's environment at spawn time.
func BuildCommand(agents map[string]string, dockerImage, cli string, args []string, env map[string]string) (Command, error) {
	path, ok := agents[cli]
	if !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownAgent, cli)
	}

	args = rewriteModelArgs(cli, args)

	if dockerImage != "" {
		dockerArgs := []string{"run", "--rm", "-i"}
		for _, k := range sortedKeys(env) {
			dockerArgs = append(dockerArgs, "-e", fmt.Sprintf("%s=%s", k, env[k]))
		}
		dockerArgs = append(dockerArgs, dockerImage, cli)
		dockerArgs = append(dockerArgs, args...)
		return Command{Program: "docker", Args: dockerArgs}, nil
	}

	return Command{Program: path, Args: args, Env: env}, nil
}

// rewriteModelArgs strips an explicit model flag for agents that take the
// model through configuration instead. Codex accepts `-c model=X`, so a
// caller-supplied `--model X` / `-m X` pair is re-expressed that way.
func rewriteModelArgs(cli string, args []string) []string {
	if cli != "codex" {
		return args
	}

	out := make([]string, 0, len(args))
	model := ""
	for i := 0; i < len(args); i++ {
		a := args[i]
		if (a == "--model" || a == "-m") && i+1 < len(args) {
			model = args[i+1]
			i++
			continue
		}
		if v, found := strings.CutPrefix(a, "--model="); found {
			model = v
			continue
		}
		out = append(out, a)
	}

	if model != "" {
		out = append(out, "-c", "model="+model)
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
