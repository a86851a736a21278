// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/bladebuild/synth/cmd/blade-synth"

func main() {
	cmd.Execute()
}
