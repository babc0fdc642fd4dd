package agentproc

import (
	"os"
	"path/filepath"
	"runtime"
)

// DiscoverBinary finds the coding-CLI binary by probing the installation
// locations spec §6 describes, in the same per-OS order as the original
// elevation-aware discovery helper: on Unix, a user-local install path and
// a node-version-manager-managed install before the system path; on
// Windows, the npm global install location before Program Files. An
// explicit override always wins.
func DiscoverBinary(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err == nil {
			return override, nil
		}
		return "", &NotFoundError{Reason: "configured binary override does not exist: " + override}
	}

	if runtime.GOOS == "windows" {
		return discoverWindows()
	}
	return discoverUnix()
}

func discoverUnix() (string, error) {
	home := os.Getenv("HOME")
	if home != "" {
		local := filepath.Join(home, ".local", "bin", "claude")
		if fileExists(local) {
			return local, nil
		}
		nvmDir := filepath.Join(home, ".nvm", "versions", "node")
		if entries, err := os.ReadDir(nvmDir); err == nil {
			for _, e := range entries {
				candidate := filepath.Join(nvmDir, e.Name(), "bin", "claude")
				if fileExists(candidate) {
					return candidate, nil
				}
			}
		}
	}
	const usrLocal = "/usr/local/bin/claude"
	if fileExists(usrLocal) {
		return usrLocal, nil
	}
	return "", &NotFoundError{Reason: "no coding CLI binary found in $HOME/.local/bin, nvm node installs, or /usr/local/bin"}
}

func discoverWindows() (string, error) {
	if appdata := os.Getenv("APPDATA"); appdata != "" {
		npm := filepath.Join(appdata, "npm", "claude.cmd")
		if fileExists(npm) {
			return npm, nil
		}
	}
	programFiles := os.Getenv("ProgramFiles")
	if programFiles == "" {
		programFiles = `C:\Program Files`
	}
	pf := filepath.Join(programFiles, "nodejs", "claude.cmd")
	if fileExists(pf) {
		return pf, nil
	}
	return "", &NotFoundError{Reason: "no coding CLI binary found in %APPDATA%\\npm or Program Files\\nodejs"}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// NotFoundError is returned by DiscoverBinary when no install location has
// the binary; pkg/agentmgr wraps it as pipelineerr.KindNotFound, the
// NotFound case named in spec §4.1's spawn contract.
type NotFoundError struct{ Reason string }

func (e *NotFoundError) Error() string { return e.Reason }
