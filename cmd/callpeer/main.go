// Command callpeer is a headless room participant: it negotiates a media
// session with synthetic tracks and turns stdin lines into chat messages.
package main

func main() {
	Execute()
}
