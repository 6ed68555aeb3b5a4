package service

import (
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestRenderUnit(t *testing.T) {
	is := is.New(t)
	unit, err := renderUnit(Options{
		Executable: "/opt/speakerswitch/speakerswitch",
		ConfigPath: "/etc/speakerswitch/config.json",
	})
	is.NoErr(err)
	is.True(strings.Contains(unit, "ExecStart=/opt/speakerswitch/speakerswitch run --config /etc/speakerswitch/config.json\n"))
	is.True(strings.Contains(unit, "WorkingDirectory=/etc/speakerswitch\n"))
	is.True(strings.Contains(unit, "Restart=on-failure"))
	is.True(strings.Contains(unit, "WantedBy=multi-user.target"))
}

func TestRenderUnitWithoutConfig(t *testing.T) {
	is := is.New(t)
	unit, err := renderUnit(Options{Executable: "/usr/local/bin/speakerswitch"})
	is.NoErr(err)
	is.True(strings.Contains(unit, "ExecStart=/usr/local/bin/speakerswitch run\n"))
	is.True(!strings.Contains(unit, "WorkingDirectory"))
}

func TestSystemdQuote(t *testing.T) {
	is := is.New(t)
	is.Equal(systemdQuote("/usr/bin/x"), "/usr/bin/x")
	is.Equal(systemdQuote("/srv/my app/x"), `"/srv/my app/x"`)
	is.Equal(systemdQuote(`a"b c`), `"a\"b c"`)
}

func TestSCCreateArgs(t *testing.T) {
	is := is.New(t)
	args := scCreateArgs(Options{
		Executable: `C:\Program Files\SpeakerSwitch\speakerswitch.exe`,
		ConfigPath: `C:\ProgramData\speakerswitch\config.json`,
	})
	is.Equal(args[0], "create")
	is.Equal(args[1], Name)
	is.Equal(args[2], "binPath=")
	is.Equal(args[3], `"C:\Program Files\SpeakerSwitch\speakerswitch.exe" run --config C:\ProgramData\speakerswitch\config.json`)
	is.Equal(args[4:6], []string{"start=", "auto"})
}
