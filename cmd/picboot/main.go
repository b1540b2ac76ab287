// Command picboot flashes PIC microcontrollers through the Microchip USB HID
// bootloader.
package main

import "github.com/moffa90/go-picboot/cmd/picboot/cmd"

func main() {
	cmd.Execute()
}
