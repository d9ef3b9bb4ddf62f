// Varasto - infrastructure inventory catalog service.
package main

func main() {
	Execute()
}
