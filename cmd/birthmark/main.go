// Birthmark - who created what, and is it still there.
package main

func main() {
	Execute()
}
