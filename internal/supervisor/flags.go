package supervisor

// tuningFlags are the JVM flags every server is launched with (Aikar's G1
// settings, https://mcflags.emc.gs). Heap size is added separately from the
// package's launcher.memory.
var tuningFlags = []string{
	"-XX:+UseG1GC",
	"-XX:+ParallelRefProcEnabled",
	"-XX:MaxGCPauseMillis=200",
	"-XX:+UnlockExperimentalVMOptions",
	"-XX:+DisableExplicitGC",
	"-XX:+AlwaysPreTouch",
	"-XX:G1NewSizePercent=30",
	"-XX:G1MaxNewSizePercent=40",
	"-XX:G1HeapRegionSize=8M",
	"-XX:G1ReservePercent=20",
	"-XX:G1HeapWastePercent=5",
	"-XX:G1MixedGCCountTarget=4",
	"-XX:InitiatingHeapOccupancyPercent=15",
	"-XX:G1MixedGCLiveThresholdPercent=90",
	"-XX:G1RSetUpdatingPauseTimePercent=5",
	"-XX:SurvivorRatio=32",
	"-XX:+PerfDisableSharedMem",
	"-XX:MaxTenuringThreshold=1",
	"-Dusing.aikars.flags=https://mcflags.emc.gs",
	"-Daikars.new.flags=true",
}

// TuningFlags returns a copy of the fixed JVM tuning flags.
func TuningFlags() []string {
	return append([]string(nil), tuningFlags...)
}

// LaunchSpec describes how to start one package's server.
type LaunchSpec struct {
	Package string
	// Binary is the installed server artifact.
	Binary  string
	WorkDir string

	Java     string
	Memory   string
	JavaArgs []string
	GameArgs []string

	// Wrapper runs the server under the console wrapper instead of relying on
	// the in-server plugin to read the command channel.
	Wrapper bool

	// Command replaces the java command line when set.
	Command []string
}

// JavaCommand returns the java command line for spec.
func (s LaunchSpec) JavaCommand() []string {
	java := s.Java
	if java == "" {
		java = "java"
	}
	args := []string{java}
	if s.Memory != "" {
		args = append(args, "-Xms"+s.Memory, "-Xmx"+s.Memory)
	}
	args = append(args, tuningFlags...)
	args = append(args, s.JavaArgs...)
	args = append(args, "-jar", s.Binary)
	return append(args, s.GameArgs...)
}

// argv returns the full command line, wrapped when requested.
func (s LaunchSpec) argv(endpoint, wrapper string) []string {
	base := s.Command
	if len(base) == 0 {
		base = s.JavaCommand()
	}
	if !s.Wrapper {
		return base
	}
	return append([]string{wrapper, "--pipe", endpoint, "--"}, base...)
}
