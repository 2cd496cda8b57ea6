package processor

import (
	"regexp"
	"strings"

	"github.com/ValentinKolb/dStats/lib/defaults"
)

var subjectTagRe = regexp.MustCompile(`\[([^\[\]]+)\]`)

// moduleIndex maps module names and their aliases to the module name
type moduleIndex struct {
	names map[string]string
}

// newModuleIndex indexes the modules of repos. Client libraries
// (python-*) never name a mailing list topic and are left out.
func newModuleIndex(repos []defaults.Repo) moduleIndex {
	mi := moduleIndex{names: make(map[string]string)}
	for _, repo := range repos {
		module := strings.ToLower(repo.Module)
		if module == "" || strings.HasPrefix(module, "python-") {
			continue
		}
		mi.names[module] = module
		for _, alias := range repo.Aliases {
			mi.names[strings.ToLower(alias)] = module
		}
	}
	return mi
}

// guess returns the module of the first [tag] in subject that names a
// module or alias, "" if none does.
func (mi moduleIndex) guess(subject string) string {
	for _, m := range subjectTagRe.FindAllStringSubmatch(subject, -1) {
		if module, ok := mi.names[strings.ToLower(strings.TrimSpace(m[1]))]; ok {
			return module
		}
	}
	return ""
}
