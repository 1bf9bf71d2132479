package version

// Version is the current version of the webdrop binaries.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/Maolipeng/web-drop/internal/version.Version=v1.0.0'"
var Version = "dev"
