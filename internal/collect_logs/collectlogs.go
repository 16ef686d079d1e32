// Package collect_logs packages the recorder's logs, configuration and
// recording inventory into a zip archive for support.
package collect_logs

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"Kakofonix/astrec/internal/recording"
	"Kakofonix/astrec/internal/version"
)

// Sources names what goes into the bundle. Empty fields are skipped.
type Sources struct {
	ConfigPath string
	// LogFile is the active log; rotated backups next to it are included too.
	LogFile string
	// Prefix is the recording prefix. Manifests are included and recordings
	// are listed, but recording data is not copied.
	Prefix string
}

// CollectLogs writes the bundle to zipName. Missing sources are skipped.
func CollectLogs(zipName string, src Sources) error {
	zipFile, err := os.Create(zipName)
	if err != nil {
		return fmt.Errorf("failed to create zip: %w", err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)

	if src.LogFile != "" {
		for _, path := range logFiles(src.LogFile) {
			_ = addFileToZip(zipWriter, path, "logs/"+filepath.Base(path)) // Non-fatal
		}
	}

	if src.ConfigPath != "" {
		if _, err := os.Stat(src.ConfigPath); err == nil {
			_ = addFileToZip(zipWriter, src.ConfigPath, "config.json") // Non-fatal
		}
	}

	if src.Prefix != "" {
		inventory, manifests := recordings(src.Prefix)
		_ = addStringToZip(zipWriter, "recordings.txt", inventory)
		for _, path := range manifests {
			_ = addFileToZip(zipWriter, path, "manifests/"+filepath.Base(path))
		}
	}

	_ = addStringToZip(zipWriter, "version.txt", version.Version+"\n")
	_ = addStringToZip(zipWriter, "interfaces.txt", interfaceInfo())
	_ = addStringToZip(zipWriter, "system-info.txt", getSystemInfo())

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish zip: %w", err)
	}
	return nil
}

// logFiles returns the log file and its rotated backups, which are named
// <name>-<timestamp><ext>[.gz].
func logFiles(logFile string) []string {
	dir := filepath.Dir(logFile)
	base := filepath.Base(logFile)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == base || strings.HasPrefix(name, stem+"-") {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out
}

// recordings lists the finalized and active recordings for prefix and
// returns the manifest paths found alongside them.
func recordings(prefix string) (string, []string) {
	dir := filepath.Dir(prefix)
	stem := filepath.Base(prefix)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Sprintf("unable to read %s: %v\n", dir, err), nil
	}

	var b strings.Builder
	var manifests []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, stem) {
			continue
		}
		switch {
		case strings.HasSuffix(name, recording.Extension):
			info, err := e.Info()
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "%-40s %12d %s\n", name, info.Size(), info.ModTime().UTC().Format("2006-01-02T15:04:05Z"))
		case strings.HasSuffix(name, recording.Extension+".json"):
			manifests = append(manifests, filepath.Join(dir, name))
		}
	}
	sort.Strings(manifests)
	return b.String(), manifests
}

func addFileToZip(zipWriter *zip.Writer, filename, name string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w, err := zipWriter.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, file)
	return err
}

func addStringToZip(zipWriter *zip.Writer, filename, content string) error {
	w, err := zipWriter.Create(filename)
	if err != nil {
		return err
	}
	_, err = w.Write([]byte(content))
	return err
}

// interfaceInfo records what the recorder could join on.
func interfaceInfo() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return fmt.Sprintf("unable to list interfaces: %v\n", err)
	}
	var b strings.Builder
	for _, ifi := range ifaces {
		fmt.Fprintf(&b, "%s flags=%s mtu=%d\n", ifi.Name, ifi.Flags, ifi.MTU)
		addrs, _ := ifi.Addrs()
		for _, a := range addrs {
			fmt.Fprintf(&b, "  %s\n", a)
		}
	}
	return b.String()
}

func getSystemInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "OS: %s\nArch: %s\nGo version: %s\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
	fmt.Fprintf(&b, "NumCPU: %d\nGOMAXPROCS: %d\n", runtime.NumCPU(), runtime.GOMAXPROCS(0))
	if hn, err := os.Hostname(); err == nil {
		fmt.Fprintf(&b, "Hostname: %s\n", hn)
	}

	if runtime.GOOS == "linux" {
		if f, err := os.Open("/etc/os-release"); err == nil {
			defer f.Close()
			b.WriteString("/etc/os-release:\n")
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				line := scanner.Text()
				if strings.HasPrefix(line, "NAME=") || strings.HasPrefix(line, "VERSION=") || strings.HasPrefix(line, "PRETTY_NAME=") {
					b.WriteString("  " + line + "\n")
				}
			}
		}
		// Receive buffer ceilings matter for bursty feeds.
		for _, p := range []string{"/proc/sys/net/core/rmem_max", "/proc/sys/net/core/rmem_default"} {
			if data, err := os.ReadFile(p); err == nil {
				fmt.Fprintf(&b, "%s: %s\n", p, strings.TrimSpace(string(data)))
			}
		}
	}
	return b.String()
}
