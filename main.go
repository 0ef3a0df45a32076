// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import "github.com/forgotten-org/forgerun/cmd"

func main() {
	cmd.Execute()
}
