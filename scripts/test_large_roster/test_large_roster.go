package main

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/ShepherdCMS/shepherd-app/shepherd/roster"
	"github.com/ShepherdCMS/shepherd-app/shepherd/roster/gen"
)

// Compares the memory cost of parsing a max-size roster the way StartImport
// does (read the whole upload, parse from the buffer) against handing the
// file straight to the parser.
func main() {

	f, err := os.Create("./memprofile.prof")
	if err != nil {
		log.Fatal("could not create memory profile: ", err)
	}
	defer f.Close()

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	rosterPath := "/tmp/large_roster.csv"
	if err := gen.WriteRosterFile(rosterPath, roster.TemplateColumns(), roster.MaxRows); err != nil {
		fmt.Printf("\ngenerate error: %+v\n", err)
	}

	// mem check
	// fmt.Printf("\nTotalAlloc before openFileBytes: %+v\n", stats)

	// parse old way: buffer the whole file like the import service does
	buff, err := openFileBytes(rosterPath)
	if err != nil {
		fmt.Printf("\nopenFileBytes error: %+v\n", err)
	}
	fmt.Printf("file_size_bytes %+v\n", len(buff))

	parsed, err := roster.Parse(bytes.NewReader(buff))
	if err != nil {
		fmt.Printf("\nparse error: %+v\n", err)
	}
	fmt.Printf("\nrows (buffered): %d\n", len(parsed.Rows))

	// runtime.GC()

	// parse new way
	parsed, err = streamFile(rosterPath)
	if err != nil {
		fmt.Printf("\nstreamFile error: %+v\n", err)
	}
	fmt.Printf("\nrows (streamed): %d\n", len(parsed.Rows))

	runtime.ReadMemStats(&stats)
	fmt.Printf("\nTotalAlloc: %v MiB\n", stats.TotalAlloc/1024/1024)

	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Fatal("could not write heap profile: ", err)
	}
}

func openFileBytes(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func streamFile(path string) (*roster.Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return roster.Parse(f)
}
