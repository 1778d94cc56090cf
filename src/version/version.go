package version

//Version is the full version string
var Version = "0.3.1"

//GitCommit is set with: -ldflags "-X github.com/engagemesh/engage/src/version.GitCommit=`git rev-parse HEAD`"
var GitCommit string

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit[:8]
	}
}
