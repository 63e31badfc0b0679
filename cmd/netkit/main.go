// Command netkit runs echo servers and sends messages to them over TCP,
// UDP and WebSocket.
package main

func main() {
	Execute()
}
