// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command authctl runs one-shot operator tasks against the authentication
// database: migrations, admin bootstrap, forced sign-out and row purging.
package main

import "github.com/haii/authcore/cmd/authctl/cmd"

func main() {
	cmd.Execute()
}
