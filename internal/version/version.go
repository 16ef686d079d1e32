package version

// Version is overridden at build time with -ldflags "-X Kakofonix/astrec/internal/version.Version=..."
var Version = "1.2.0"

// Banner is printed at startup.
const Banner = "astrec - ASTERIX multicast recorder"
