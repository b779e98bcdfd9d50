package version

import "runtime/debug"

// AppName is stamped into logs and metrics.
const AppName = "zeronode"

// Populated at build time via -ldflags; fall back to VCS build info.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate string
	GoVersion string
	VCSDirty  *bool
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	VCSDirty  *bool  `json:"vcs_dirty,omitempty"`
}

func Get() Info {
	out := Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
		VCSDirty:  VCSDirty,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		out.GoVersion = bi.GoVersion
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if out.Commit == "none" && s.Value != "" {
					out.Commit = s.Value
				}
			case "vcs.time":
				if out.BuildDate == "" && s.Value != "" {
					out.BuildDate = s.Value
				}
			case "vcs.modified":
				switch s.Value {
				case "true":
					t := true
					out.VCSDirty = &t
				case "false":
					f := false
					out.VCSDirty = &f
				}
			}
		}
	}

	return out
}
