package progress

import (
	"io/ioutil"
	"sync"
	"testing"
	"time"

	"github.com/simulot/multidl/task"
)

func TestDisplayEnds(t *testing.T) {
	d := New("test batch with a long name", 4, WithOutput(ioutil.Discard), WithWidth(20))

	var wg sync.WaitGroup
	// The fourth task is skipped and never gets a bar
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := d.Progresser(task.Task{Source: "http://example.com/f", Destination: "/tmp/f"})
			switch i {
			case 0:
				p.Init(3000)
				for c := int64(1000); c <= 3000; c += 1000 {
					p.Update(c, 3000)
				}
				p.Done(task.CompletedOutcome(3000))
			case 1:
				p.Init(-1)
				p.Update(10, -1)
				p.Done(task.FailedStatus(404, 10))
			default:
				p.Done(task.FailedIO(nil))
			}
		}(i)
	}
	wg.Wait()

	ended := make(chan struct{})
	go func() {
		d.Wait()
		close(ended)
	}()
	select {
	case <-ended:
	case <-time.After(5 * time.Second):
		t.Fatal("Display didn't end")
	}
}

func TestLeft(t *testing.T) {
	if left("abcdef", 3) != "abc" || left("ab", 3) != "ab" {
		t.Errorf("left doesn't truncate as expected")
	}
}
