package testing

import (
	"flag"
	"fmt"
	"os"
	"testing"
	"time"
)

var testTimeout = flag.Duration("timeout", 30*time.Second, "Test timeout duration")

func TestMain(m *testing.M) {
	flag.Parse()

	fmt.Println("🧪 Starting BC Backend Test Suite")
	fmt.Println("==================================")

	if *testTimeout > 0 {
		fmt.Printf("Test timeout: %v\n", *testTimeout)
	}

	exitCode := m.Run()

	fmt.Println("\n🏁 Test Suite Complete")
	fmt.Println("======================")

	os.Exit(exitCode)
}
