// Command checkflow runs a declarative task graph: a checklist runtime for
// operational procedures that schedules tasks across goroutines, running
// automated implementations where bound and falling back to interactive
// manual completion otherwise.
package main

import "github.com/mediacrew/checkflow/cmd"

func main() {
	cmd.Execute()
}
