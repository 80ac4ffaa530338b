//go:build embed

package ssh

import _ "embed"

// Release build: embed Linux binaries for cross-platform SSH agent forwarding.
// Build Linux binaries first, then build with -tags embed:
//
//   CGO_ENABLED=0 GOOS=linux GOARCH=amd64 go build -o internal/ssh/bin/devc-linux-amd64 ./cmd/devc
//   CGO_ENABLED=0 GOOS=linux GOARCH=arm64 go build -o internal/ssh/bin/devc-linux-arm64 ./cmd/devc
//   CGO_ENABLED=0 GOOS=darwin GOARCH=arm64 go build -tags embed -o devc ./cmd/devc

//go:embed bin/devc-linux-amd64
var devcLinuxAmd64 []byte

//go:embed bin/devc-linux-arm64
var devcLinuxArm64 []byte
