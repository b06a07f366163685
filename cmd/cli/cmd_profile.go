package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/and161185/social-client/internal/api"
	"github.com/and161185/social-client/internal/cropper"
	"github.com/and161185/social-client/internal/profile"
)

func profileCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "View or edit profiles",
	}
	cmd.AddCommand(profileShowCmd(g), profileUpdateCmd(g))
	return cmd
}

func profileShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show [hash-id]",
		Short: "Show a profile (default: yours)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			hashID := ownHashID(g)
			if len(args) == 1 {
				hashID = args[0]
			}
			res, err := a.Profile.Get(ctx, hashID)
			if err != nil {
				return err
			}
			g.out(res, func(w io.Writer) {
				p := res.Profile
				fmt.Fprintf(w, "@%s  %s\n", res.User.Username, p.DisplayName)
				if p.Bio != "" {
					fmt.Fprintf(w, "  %s\n", p.Bio)
				}
				fmt.Fprintf(w, "  %s followers, %s following, %s posts\n",
					humanize.Comma(int64(p.FollowersCount)), humanize.Comma(int64(p.FollowingCount)), humanize.Comma(int64(p.PostsCount)))
				if p.Avatar != "" {
					fmt.Fprintf(w, "  avatar: %s\n", p.Avatar)
				}
				if p.Cover != "" {
					fmt.Fprintf(w, "  cover:  %s\n", p.Cover)
				}
			})
			return nil
		},
	}
}

// ownHashID is the logged-in user's profile id.
func ownHashID(g *globals) string {
	sess, _ := g.app.Store.Current()
	if sess.Profile.HashID != "" {
		return sess.Profile.HashID
	}
	return sess.User.HashID
}

// croppedFile decodes path and renders the default crop for kind.
func croppedFile(path string, kind cropper.Kind) ([]byte, error) {
	data, err := readAll(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	img, err := cropper.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return profile.DefaultImage(img, kind)
}

func profileUpdateCmd(g *globals) *cobra.Command {
	var name, bio, avatar, cover string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Edit your profile; images are centre-cropped (use `sc crop` for manual framing)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u := api.ProfileUpdate{DisplayName: name, Bio: bio}
			var err error
			if avatar != "" {
				if u.Avatar, err = croppedFile(avatar, cropper.Avatar); err != nil {
					return err
				}
			}
			if cover != "" {
				if u.Cover, err = croppedFile(cover, cropper.Cover); err != nil {
					return err
				}
			}
			ctx, cancel := g.withTimeout(cmd.Context())
			defer cancel()
			a, err := g.authed(ctx)
			if err != nil {
				return err
			}
			p, err := a.Profile.Update(ctx, ownHashID(g), u)
			if err != nil {
				return err
			}
			g.out(p, func(w io.Writer) {
				fmt.Fprintf(w, "profile updated: %s\n", p.DisplayName)
			})
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "display name")
	f.StringVar(&bio, "bio", "", "bio")
	f.StringVar(&avatar, "avatar", "", "avatar image (png, jpeg or webp)")
	f.StringVar(&cover, "cover", "", "cover image (png, jpeg or webp)")
	return cmd
}

func cropCmd(g *globals) *cobra.Command {
	var (
		kindName   string
		zoom       float64
		rotate     float64
		panX, panY float64
	)
	cmd := &cobra.Command{
		Use:   "crop <in> <out.jpg>",
		Short: "Crop an image to avatar (400x400) or cover (1200x400) JPEG offline",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			kind, ok := cropper.ParseKind(kindName)
			if !ok {
				return fmt.Errorf("--kind must be avatar or cover, got %q", kindName)
			}
			data, err := readAll(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			img, err := cropper.Decode(bytes.NewReader(data))
			if err != nil {
				return err
			}
			natural := cropper.NaturalSize(img)
			t := cropper.Identity().Pinch(zoom).Rotate(rotate).Drag(panX, panY)
			crop := cropper.DefaultCrop(natural, natural, kind)

			var buf bytes.Buffer
			if err := cropper.Export(&buf, img, natural, t, crop, kind); err != nil {
				return err
			}
			if args[1] == "-" {
				_, err = g.stdout.Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(args[1], buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", args[1], err)
			}
			w, h := kind.Size()
			fmt.Fprintf(g.stderr, "wrote %s %dx%d (%s)\n", args[1], w, h, humanize.Bytes(uint64(buf.Len())))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&kindName, "kind", "avatar", "avatar or cover")
	f.Float64Var(&zoom, "zoom", 1, "zoom factor, 1..3")
	f.Float64Var(&rotate, "rotate", 0, "clockwise rotation in degrees")
	f.Float64Var(&panX, "pan-x", 0, "horizontal pan in image pixels")
	f.Float64Var(&panY, "pan-y", 0, "vertical pan in image pixels")
	return cmd
}
