// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import "github.com/grailbio/lincode/cmd/lincode/cmd"

func main() {
	cmd.Run()
}
