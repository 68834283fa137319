package fonts

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// type1Info is read from the cleartext part of a Type 1 program.
type type1Info struct {
	FontName    string
	ItalicAngle float64
	FontBBox    [4]float64
}

// readType1 accepts both the PDF embedding (cleartext then eexec
// section) and PFB segments.
func readType1(data []byte) (*type1Info, error) {
	clear := data
	if len(data) >= 6 && data[0] == 0x80 {
		seg, err := pfbFirstSegment(data)
		if err != nil {
			return nil, err
		}
		clear = seg
	}
	if i := bytes.Index(clear, []byte("eexec")); i >= 0 {
		clear = clear[:i]
	}
	if !bytes.HasPrefix(clear, []byte("%!")) {
		return nil, fmt.Errorf("missing PostScript header")
	}
	info := &type1Info{}
	sc := bufio.NewScanner(bytes.NewReader(clear))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "/FontName":
			info.FontName = strings.TrimPrefix(fields[1], "/")
		case "/ItalicAngle":
			info.ItalicAngle, _ = strconv.ParseFloat(fields[1], 64)
		case "/FontBBox":
			open := strings.IndexAny(line, "{[")
			end := strings.IndexAny(line, "}]")
			if open < 0 || end <= open {
				continue
			}
			nums := strings.Fields(line[open+1 : end])
			for i := 0; i < 4 && i < len(nums); i++ {
				info.FontBBox[i], _ = strconv.ParseFloat(nums[i], 64)
			}
		}
	}
	if info.FontName == "" {
		return nil, fmt.Errorf("no /FontName in cleartext")
	}
	return info, nil
}

// pfbFirstSegment returns the ASCII segment of a PFB file.
func pfbFirstSegment(data []byte) ([]byte, error) {
	if data[1] != 1 {
		return nil, fmt.Errorf("PFB segment type %d, want 1", data[1])
	}
	n := int(binary.LittleEndian.Uint32(data[2:6]))
	if 6+n > len(data) {
		return nil, fmt.Errorf("PFB segment length %d past end", n)
	}
	return data[6 : 6+n], nil
}
