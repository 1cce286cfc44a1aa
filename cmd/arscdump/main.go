package main

import (
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/avast/arscparser"
)

func main() {
	isApk := flag.Bool("a", false, "The input file is an apk")
	isArsc := flag.Bool("r", false, "The input file is a resources.arsc table")

	flag.Parse()

	if len(flag.Args()) != 1 {
		fmt.Printf("%s [-a|-r] INPUT\n", os.Args[0])
		os.Exit(1)
	}

	input := flag.Args()[0]
	if strings.HasSuffix(input, ".apk") {
		*isApk = true
	} else if strings.HasSuffix(input, ".arsc") {
		*isArsc = true
	}

	switch {
	case *isApk:
		dumpApk(input)
	case *isArsc:
		dumpTable(input)
	default:
		dumpXml(input)
	}
}

func dumpApk(input string) {
	enc := xml.NewEncoder(os.Stdout)
	enc.Indent("", "    ")

	zipErr, resErr, manifestErr := arscparser.ParseApk(input, enc)
	fmt.Println()
	if zipErr != nil {
		fmt.Fprintln(os.Stderr, zipErr)
		os.Exit(1)
	}
	if resErr != nil {
		fmt.Fprintln(os.Stderr, "resources:", resErr)
	}
	if manifestErr != nil {
		fmt.Fprintln(os.Stderr, "manifest:", manifestErr)
		os.Exit(1)
	}
}

func dumpTable(input string) {
	f, err := os.Open(input)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer f.Close()

	table, err := arscparser.ParseResourceTable(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	for i := 0; i < table.PackageCount(); i++ {
		fmt.Printf("package 0x%02x %s\n", table.PackageID(i), table.PackageName(i))
	}
	for _, c := range table.Configurations() {
		fmt.Printf("config %s\n", c.String())
	}
	fmt.Printf("locales: %s\n", strings.Join(table.Locales(), " "))
}

func dumpXml(input string) {
	var r io.Reader
	if input == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(input)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
	}

	enc := xml.NewEncoder(os.Stdout)
	enc.Indent("", "    ")

	err := arscparser.ParseXml(r, enc, nil)
	fmt.Println()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
