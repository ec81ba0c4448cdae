package crange

import "fmt"

func ExampleIndex_FindAndLock() {
	c := New()

	l := c.FindAndLock(0x1000, 0x2000)
	r, err := c.NewRange(0x1000, 0x2000, "heap")
	if err != nil {
		panic(err)
	}
	l.Replace(r)
	l.Release()

	fmt.Println(c.Search(0x1800, 1), c.Search(0x1800, 1).Value())
	// Output: [0x1000, 0x3000) heap
}

func ExampleIndex_Search() {
	c := New()
	for _, key := range []uint64{0, 200, 500} {
		l := c.FindAndLock(key, 50)
		r, _ := c.NewRange(key, 50, nil)
		l.Replace(r)
		l.Release()
	}
	fmt.Println(c.Search(210, 10))
	fmt.Println(c.Search(100, 50))
	// Output: [0xc8, 0xfa)
	// <nil>
}

func ExampleLocked_ReplaceRange() {
	c := New()
	l := c.FindAndLock(0, 100)
	whole, _ := c.NewRange(0, 100, nil)
	l.Replace(whole)
	l.Release()

	// Split [0, 100) around a hole at [40, 60).
	l = c.FindAndLock(40, 20)
	lo, _ := c.NewRange(0, 40, nil)
	hi, _ := c.NewRange(60, 40, nil)
	l.ReplaceRange(whole, lo, hi)
	l.Release()

	for r := range c.All() {
		fmt.Println(r.Key(), r.End())
	}
	// Output: 0 40
	// 60 100
}

func ExampleLocked_Replace() {
	c := New()
	for _, key := range []uint64{0, 10, 20, 30} {
		l := c.FindAndLock(key, 5)
		r, _ := c.NewRange(key, 5, nil)
		l.Replace(r)
		l.Release()
	}

	l := c.FindAndLock(10, 15)
	fmt.Println("window:", l.Len())
	l.Replace()
	l.Release()
	fmt.Println("left:", c.Len())
	// Output: window: 2
	// left: 2
}
