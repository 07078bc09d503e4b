// +build !testkernel

package kmain

import (
	"kernos/device/kbd"
	"kernos/kernel/kfmt"
	"kernos/kernel/task"
)

// run spawns the long-lived kernel tasks and hands the CPU to the executor.
// It never returns.
func run() {
	executor := task.NewExecutor()

	echo := kbd.NewEchoTask(kbd.EventQueue(), kbd.NewUSQwertyDecoder(), kfmt.GetOutputSink())
	if _, err := executor.Spawn(echo); err != nil {
		kfmt.Panic(err)
	}

	kfmt.Printf("kernos: ready\n")
	executor.Run()
}
