// Command patchcache inspects and patches the offline entity cache.
package main

import "github.com/mesh-intelligence/patchcache/internal/cli"

func main() {
	cli.Execute()
}
