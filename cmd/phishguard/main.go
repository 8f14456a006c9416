// Command phishguard evaluates URLs for phishing risk and serves the
// service context over HTTP.
package main

func main() {
	Execute()
}
