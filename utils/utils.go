package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

var commands = []string{"detect", "clean", "restore", "backups"}

// ParseArguments converts command-line arguments into a map of flags and
// values, with the command stored under "command".
func ParseArguments() map[string]string {
	args := make(map[string]string)

	command := ""
	commandIndex := -1
	for i := 1; i < len(os.Args); i++ {
		for _, c := range commands {
			if os.Args[i] == c {
				command = c
				commandIndex = i
				break
			}
		}
		if command != "" {
			break
		}
	}

	if command != "" {
		args["command"] = command
	}

	for i := 1; i < len(os.Args); i++ {
		if i == commandIndex {
			continue
		}

		arg := os.Args[i]

		// Handle flags with equals sign (--key=value)
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			args[strings.TrimPrefix(parts[0], "--")] = parts[1]
			continue
		}

		// Handle flags without equals sign (--key value), including bare
		// boolean flags
		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")
			if i+1 >= len(os.Args) || strings.HasPrefix(os.Args[i+1], "--") {
				args[flagName] = "true"
			} else {
				args[flagName] = os.Args[i+1]
				i++
			}
		}
	}

	return args
}

// PrintUsage outputs the command-line usage instructions
func PrintUsage() {
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s detect  --folder=PATH [--threshold=VALUE] [--database=PATH] [--force] [--debug] [--logfile=PATH]\n", os.Args[0])
	fmt.Printf("  %s clean   --folder=PATH [--trash=PATH] [--yes] [--threshold=VALUE] [--database=PATH] [--debug]\n", os.Args[0])
	fmt.Printf("  %s restore --backup=ID [--debug]\n", os.Args[0])
	fmt.Printf("  %s backups\n", os.Args[0])
	fmt.Printf("\nParameters:\n")
	fmt.Printf("  --folder      : Path to folder containing images to scan\n")
	fmt.Printf("  --threshold   : Similarity match threshold (0.0-1.0, default: 0.92)\n")
	fmt.Printf("  --database    : Path to index database file\n")
	fmt.Printf("  --backup-dir  : Root directory for backups and manifests\n")
	fmt.Printf("  --backup      : Backup ID to restore (see the backups command)\n")
	fmt.Printf("  --trash       : Move deleted files into this directory instead of removing them\n")
	fmt.Printf("  --yes         : Delete without an interactive confirmation\n")
	fmt.Printf("  --force       : Re-read metadata even for unchanged files\n")
	fmt.Printf("  --debug       : Enable debug mode (logs detailed information)\n")
	fmt.Printf("  --logfile     : Specify custom log file path (default: imagededup.log)\n")
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s detect --folder=/path/to/photos --debug\n", os.Args[0])
	fmt.Printf("  %s clean --folder=/path/to/photos --trash=/path/to/trash --yes\n", os.Args[0])
	fmt.Printf("  %s restore --backup=backup_20240101T120000Z_ab12cd34\n", os.Args[0])
}

// ParseThreshold parses and validates a threshold value from string
func ParseThreshold(thresholdStr string) (float64, error) {
	parsed, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil || parsed <= 0 || parsed > 1 {
		return 0, fmt.Errorf("invalid threshold value '%s', expected a number in (0,1]", thresholdStr)
	}
	return parsed, nil
}
